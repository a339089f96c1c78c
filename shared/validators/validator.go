package validators

import (
	"github.com/neyho/eywa-go/shared"
	"github.com/neyho/eywa-go/shared/config"
)

// Set is the standard validator chain. The size and rate limits can be
// changed while frames are being validated.
type Set struct {
	Shape      *ShapeValidator
	Size       *MessageSizeValidator
	Throttling *Throttling
}

// CreateDefaultValidators returns the standard set of validators configured
// from cfg: envelope shape, params size and inbound rate.
func CreateDefaultValidators(cfg config.IConfig) (*Set, error) {
	s := &Set{
		Shape:      NewShapeValidator(),
		Size:       NewMessageSizeValidator(0),
		Throttling: NewThrottling(0),
	}
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply reads the limits from cfg again.
func (s *Set) Apply(cfg config.IConfig) error {
	maxParams, err := cfg.MaxParamsBytes()
	if err != nil {
		return err
	}
	rps, err := cfg.InboundRPS()
	if err != nil {
		return err
	}
	s.Size.SetMaxSize(int64(maxParams))
	s.Throttling.SetRate(rps)
	return nil
}

func (s *Set) Validators() []shared.MessageValidator {
	return []shared.MessageValidator{s.Shape, s.Size, s.Throttling}
}
