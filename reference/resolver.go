package reference

import (
	"context"
	"errors"
	"time"

	"github.com/RyanBlaney/sonido-critique/logging"
)

// ProfileStore caches harvested profiles
type ProfileStore interface {
	Get(ctx context.Context, artist string) (Profile, error)
	Put(ctx context.Context, p Profile) error
	IsStale(p Profile) bool
}

// Harvester builds a profile from external data sources
type Harvester interface {
	Harvest(ctx context.Context, artist string, limit int) (Profile, error)
}

// ResolverOptions wires a Resolver. Store and Harvester are optional.
type ResolverOptions struct {
	Store          ProfileStore
	Harvester      Harvester
	Catalog        *Catalog
	HarvestTimeout time.Duration
	TrackLimit     int
}

// Resolver turns any artist name into a profile and never fails
type Resolver struct {
	store          ProfileStore
	harvester      Harvester
	catalog        *Catalog
	harvestTimeout time.Duration
	trackLimit     int
	logger         logging.Logger
}

// NewResolver creates a resolver. A nil catalog uses DefaultCatalog.
func NewResolver(opts ResolverOptions) *Resolver {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	limit := opts.TrackLimit
	if limit <= 0 {
		limit = 10
	}
	return &Resolver{
		store:          opts.Store,
		harvester:      opts.Harvester,
		catalog:        catalog,
		harvestTimeout: opts.HarvestTimeout,
		trackLimit:     limit,
		logger: logging.WithFields(logging.Fields{
			"component": "reference_resolver",
		}),
	}
}

// Resolve looks the artist up in the store, then harvests on demand, then falls back to
// the built-in catalog and finally to the default profile. A stale stored profile is
// still preferred over the catalog when harvesting fails.
func (r *Resolver) Resolve(ctx context.Context, artist string) Profile {
	logger := r.logger.WithFields(logging.Fields{
		"function": "Resolve",
		"artist":   artist,
	})

	var stale *Profile
	if r.store != nil {
		p, err := r.store.Get(ctx, artist)
		switch {
		case err == nil && !r.store.IsStale(p):
			return p
		case err == nil:
			stale = &p
		case !errors.Is(err, ErrProfileNotFound):
			logger.Warn("Profile store lookup failed", logging.Fields{"error": err.Error()})
		}
	}

	if r.harvester != nil {
		p, err := r.harvest(ctx, artist)
		if err == nil {
			return p
		}
		logger.Info("Harvest failed, using fallback profile", logging.Fields{"error": err.Error()})
	}

	if stale != nil {
		return *stale
	}
	if p, ok := r.catalog.Lookup(artist); ok {
		return p
	}

	logger.Debug("Artist not recognized, using default profile")
	return DefaultProfile(artist)
}

func (r *Resolver) harvest(ctx context.Context, artist string) (Profile, error) {
	if r.harvestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.harvestTimeout)
		defer cancel()
	}

	p, err := r.harvester.Harvest(ctx, artist, r.trackLimit)
	if err != nil {
		return Profile{}, err
	}
	if r.store != nil {
		if err := r.store.Put(ctx, p); err != nil {
			r.logger.Warn("Failed to cache harvested profile", logging.Fields{
				"artist": artist,
				"error":  err.Error(),
			})
		}
	}
	return p, nil
}

// ResolveAll resolves each name in order
func (r *Resolver) ResolveAll(ctx context.Context, artists []string) []Profile {
	profiles := make([]Profile, 0, len(artists))
	for _, a := range artists {
		profiles = append(profiles, r.Resolve(ctx, a))
	}
	return profiles
}
