package cache

import (
	"fmt"
	"time"
)

// Kind names one of the four cache partitions.
type Kind string

const (
	KindStatic  Kind = "static"
	KindDynamic Kind = "dynamic"
	KindImage   Kind = "image"
	KindAPI     Kind = "api"
)

// Policy describes how a partition is filled and served.
type Policy string

const (
	PolicyPrecache     Policy = "precache"
	PolicyNetworkFirst Policy = "network-first"
	PolicyCacheFirst   Policy = "cache-first"
	PolicyTTL          Policy = "ttl"
)

const (
	APIMaxAge = 2 * time.Minute
	CDNMaxAge = 30 * 24 * time.Hour
)

// PartitionSpec is one row of the registry table.
type PartitionSpec struct {
	Kind   Kind
	Name   string
	Policy Policy
	MaxAge time.Duration // zero when entries never expire
}

// Registry is the single source of truth for which partitions belong to
// the running deployment. Partition names carry the deployment version,
// so bumping it retires every older partition on the next activation.
type Registry struct {
	version string
	specs   []PartitionSpec
}

func NewRegistry(prefix, version string) *Registry {
	name := func(k Kind) string {
		return fmt.Sprintf("%s-%s-%s", prefix, k, version)
	}
	return &Registry{
		version: version,
		specs: []PartitionSpec{
			{Kind: KindStatic, Name: name(KindStatic), Policy: PolicyPrecache, MaxAge: CDNMaxAge},
			{Kind: KindDynamic, Name: name(KindDynamic), Policy: PolicyNetworkFirst},
			{Kind: KindImage, Name: name(KindImage), Policy: PolicyCacheFirst},
			{Kind: KindAPI, Name: name(KindAPI), Policy: PolicyTTL, MaxAge: APIMaxAge},
		},
	}
}

func (r *Registry) Version() string {
	return r.version
}

func (r *Registry) Partitions() []PartitionSpec {
	out := make([]PartitionSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Spec returns the row for kind. Every Kind constant has a row.
func (r *Registry) Spec(kind Kind) PartitionSpec {
	for _, s := range r.specs {
		if s.Kind == kind {
			return s
		}
	}
	panic(fmt.Sprintf("cache: unknown partition kind %q", kind))
}

func (r *Registry) Name(kind Kind) string {
	return r.Spec(kind).Name
}

// Known reports whether name belongs to the current deployment.
func (r *Registry) Known(name string) bool {
	for _, s := range r.specs {
		if s.Name == name {
			return true
		}
	}
	return false
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}
