package generate

import (
	"context"

	"github.com/jward/ripple/internal/runtime"
)

// Script is a generator implemented by a Risor script.
type Script struct {
	key Key
	rt  *runtime.Runtime
}

// NewScript returns the script generator for key, run by rt.
func NewScript(rt *runtime.Runtime, key Key) Script {
	return Script{key: key, rt: rt}
}

func (s Script) Key() Key { return s.key }

func (s Script) Generate(ctx context.Context, in Input) (Output, error) {
	res, err := s.rt.RunGenerator(ctx, runtime.GeneratorRequest{
		Language: s.key.Language,
		Dialect:  s.key.Dialect,
		Change:   in.Change,
		Symbols:  in.Symbols,
		Sources:  in.Sources,
		Snapshot: in.Snapshot,
	})
	if err != nil {
		return Output{}, err
	}
	for i := range res.Notes {
		if res.Notes[i].SymbolID == "" {
			continue
		}
		for _, sym := range in.Symbols {
			if sym.ID == res.Notes[i].SymbolID {
				res.Notes[i].File = sym.File
				break
			}
		}
	}
	return Output{Patches: res.Patches, Notes: res.Notes}, nil
}
