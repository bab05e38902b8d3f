package analyzers

import (
	"github.com/RyanBlaney/sonido-critique/logging"
)

// Options tune registry construction
type Options struct {
	DisablePrimary bool
}

// Registry holds the ordered tier list of every category. It is read-only once built.
type Registry struct {
	caps  Capabilities
	tiers map[Category][]SignalAnalyzer
}

// NewRegistry resolves the tier lists from the detected capabilities
func NewRegistry(caps Capabilities, opts Options) *Registry {
	logger := logging.WithFields(logging.Fields{
		"component": "analyzer_registry",
		"function":  "NewRegistry",
	})

	primary := func(name string, category Category, available bool, tool string, build func() SignalAnalyzer) SignalAnalyzer {
		switch {
		case opts.DisablePrimary:
			logger.Info("Primary analyzer disabled by configuration", logging.Fields{"analyzer": name})
			return NewUnavailable(name, category, "primary analyzers disabled")
		case !available:
			logger.Info("Primary analyzer unavailable", logging.Fields{"analyzer": name, "missing": tool})
			return NewUnavailable(name, category, tool+" not found")
		default:
			return build()
		}
	}

	r := &Registry{
		caps: caps,
		tiers: map[Category][]SignalAnalyzer{
			CategoryRhythm: {
				primary(AubioBeatName, CategoryRhythm, caps.Aubio, "aubio", func() SignalAnalyzer {
					return NewAubioBeat(caps.AubioPath)
				}),
				NewOnsetTempo(),
			},
			CategoryHarmonic: {
				// chroma-key runs in-process, so only configuration can remove it
				primary(ChromaKeyName, CategoryHarmonic, true, "", func() SignalAnalyzer {
					return NewChromaKey()
				}),
				NewSpectrumKey(),
			},
			CategoryLoudness: {
				primary(EBUR128Name, CategoryLoudness, caps.FFmpeg, "ffmpeg", func() SignalAnalyzer {
					return NewEBUR128(caps.FFmpegPath)
				}),
				NewGatedRMS(),
			},
			CategorySpectral: {
				primary(STFTSpectralName, CategorySpectral, true, "", func() SignalAnalyzer {
					return NewSTFTSpectral()
				}),
				NewLTASSpectral(),
			},
		},
	}

	return r
}

// NewRegistryWithTiers builds a registry from explicit tier lists
func NewRegistryWithTiers(caps Capabilities, tiers map[Category][]SignalAnalyzer) *Registry {
	r := &Registry{caps: caps, tiers: make(map[Category][]SignalAnalyzer, len(tiers))}
	for category, list := range tiers {
		r.tiers[category] = append([]SignalAnalyzer(nil), list...)
	}
	return r
}

// Capabilities returns the tool flags the registry was built from
func (r *Registry) Capabilities() Capabilities {
	return r.caps
}

// Tiers returns the analyzers for category, best first. The slice is a copy.
func (r *Registry) Tiers(category Category) []SignalAnalyzer {
	list := r.tiers[category]
	if len(list) == 0 {
		return []SignalAnalyzer{NewUnavailable(string(category), category, "no backend registered")}
	}
	return append([]SignalAnalyzer(nil), list...)
}

// TierNames lists "name (fidelity)" per category for health reporting
func (r *Registry) TierNames() map[Category][]string {
	out := make(map[Category][]string, len(r.tiers))
	for _, category := range Categories() {
		for _, a := range r.Tiers(category) {
			out[category] = append(out[category], a.Name()+" ("+string(a.Fidelity())+")")
		}
	}
	return out
}
