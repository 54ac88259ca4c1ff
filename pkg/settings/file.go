package settings

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// LoadFile reads device ratings from path on top of base. Keys that are
// missing from the file keep their value from base. The format is picked
// from the file extension.
func LoadFile(path string, base types.Settings) (types.Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return types.Settings{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	out := base.Clone()
	// decoding into a populated slice would keep trailing entries
	out.CustomPriorityOrder = nil
	if err := v.Unmarshal(&out); err != nil {
		return types.Settings{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if out.CustomPriorityOrder == nil {
		out.CustomPriorityOrder = base.Clone().CustomPriorityOrder
	}
	// Validate also requires customPriorityOrder to name every device once
	if err := out.Validate(); err != nil {
		return types.Settings{}, err
	}
	return out, nil
}
