package stages

import (
	"encoding/json"
	"fmt"
	"sync"

	kazaamv4 "github.com/qntfy/kazaam/v4"
	kazaamv3 "gopkg.in/qntfy/kazaam.v3"
)

// kazaamV4Cache and kazaamV3Cache hold compiled transformers keyed by
// their raw spec string, since compiling a spec on every record would
// dominate execution time for a hot mapping.
var (
	kazaamV4Cache sync.Map
	kazaamV3Cache sync.Map
)

// kazaamTransform runs record through a Kazaam JSONPath-style spec,
// selecting the v4 grammar by default or the legacy v3 grammar when the
// mapping opts into engine "kazaam-v3".
func kazaamTransform(spec, engine string, record map[string]interface{}) (map[string]interface{}, error) {
	in, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("kazaam: marshal record: %w", err)
	}

	var out []byte
	if engine == "kazaam-v3" {
		out, err = transformV3(spec, in)
	} else {
		out, err = transformV4(spec, in)
	}
	if err != nil {
		return nil, fmt.Errorf("kazaam: %w", err)
	}

	result := make(map[string]interface{})
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("kazaam: unmarshal result: %w", err)
	}
	return result, nil
}

func transformV4(spec string, in []byte) ([]byte, error) {
	if cached, ok := kazaamV4Cache.Load(spec); ok {
		return cached.(kazaamv4.Kazaam).Transform(in)
	}

	k, err := kazaamv4.NewKazaam(spec)
	if err != nil {
		return nil, fmt.Errorf("compile v4 spec: %w", err)
	}
	kazaamV4Cache.Store(spec, k)
	return k.Transform(in)
}

func transformV3(spec string, in []byte) ([]byte, error) {
	if cached, ok := kazaamV3Cache.Load(spec); ok {
		return cached.(*kazaamv3.Kazaam).Transform(in)
	}

	k, err := kazaamv3.New(spec, kazaamv3.NewDefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("compile v3 spec: %w", err)
	}
	kazaamV3Cache.Store(spec, k)
	return k.Transform(in)
}
