package conf

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configKeyAnnotation marks a flag with the configuration key it overrides.
const configKeyAnnotation = "homeaudio_config_key"

// MarkFlag records that flag overrides the configuration key. The binding
// takes effect in BindFlags, so several commands may map different flags
// to the same key.
func MarkFlag(flags *pflag.FlagSet, flag, key string) {
	if err := flags.SetAnnotation(flag, configKeyAnnotation, []string{key}); err != nil {
		panic(err) // flag names are static
	}
}

// BindFlags binds every marked flag in flags to its configuration key in v.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[configKeyAnnotation]
		if !ok || len(keys) == 0 || bindErr != nil {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			bindErr = fmt.Errorf("error binding flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}
