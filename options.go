package objstore

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Options struct {
	// Dir holds one Bolt file per database. Leave empty (or set InMemory) to
	// keep databases in memory for the lifetime of the Engine.
	Dir      string
	InMemory bool

	Logger *slog.Logger
	// Verbose logs every request at debug level.
	Verbose bool

	// IsTesting trades durability for speed.
	IsTesting bool
	MmapSize  int
	// Timeout bounds waiting for the Bolt file lock.
	Timeout time.Duration
}

func (opt Options) inMemory() bool {
	return opt.InMemory || opt.Dir == ""
}

// LoadOptions reads Options from the environment, after loading .env and
// .env.local if they exist. Variables are named <PREFIX>_DIR, <PREFIX>_IN_MEMORY,
// <PREFIX>_VERBOSE, <PREFIX>_TESTING, <PREFIX>_MMAP_SIZE and <PREFIX>_TIMEOUT.
func LoadOptions(prefix string) (Options, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
	return optionsFromViper(newViper(prefix))
}

func newViper(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("dir", "")
	v.SetDefault("in-memory", false)
	v.SetDefault("verbose", false)
	v.SetDefault("testing", false)
	v.SetDefault("mmap-size", 0)
	v.SetDefault("timeout", "10s")
	return v
}

func optionsFromViper(v *viper.Viper) (Options, error) {
	opt := Options{
		Dir:       v.GetString("dir"),
		InMemory:  v.GetBool("in-memory"),
		Verbose:   v.GetBool("verbose"),
		IsTesting: v.GetBool("testing"),
		MmapSize:  v.GetInt("mmap-size"),
		Timeout:   v.GetDuration("timeout"),
	}
	if opt.MmapSize < 0 {
		return Options{}, fmt.Errorf("invalid mmap size %d", opt.MmapSize)
	}
	if opt.Timeout < 0 {
		return Options{}, fmt.Errorf("invalid timeout %v", opt.Timeout)
	}
	return opt, nil
}
