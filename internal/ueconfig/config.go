// Package ueconfig loads and validates the UE workload configuration.
//
// The configuration file is a flat YAML document with kebab-case keys. It
// is re-read and re-validated on every trigger: operators can change it at
// any time and validation must never rely on state from a previous event.
package ueconfig

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// Config is an immutable snapshot of validated workload configuration.
// Construction either succeeds with every field satisfying its declared
// constraints or fails with an InvalidConfigError naming every offending
// field.
type Config struct {
	// IMSI identifies the simulated subscriber.
	IMSI string `yaml:"imsi" validate:"min=14,max=15"`
	// Key is the USIM secret key, 32 hex characters.
	Key string `yaml:"key" validate:"len=32,hexadecimal"`
	// OPC is the operator code, 32 hex characters.
	OPC string `yaml:"opc" validate:"len=32,hexadecimal"`
	// DNN is the Data Network Name.
	DNN string `yaml:"dnn" validate:"required"`
	// SST is the static Slice/Service Type, used when no RF configuration
	// relation provides one.
	SST *int `yaml:"sst" validate:"omitempty,gte=1,lte=4"`
	// SD is the static Slice Differentiator. Its decimal representation
	// must have an even number of digits.
	SD *int `yaml:"sd" validate:"omitempty,gte=0,lte=16777215,evendigits"`

	SimulationMode          bool `yaml:"simulation-mode"`
	UseThreeQuarterSampling bool `yaml:"use-three-quarter-sampling"`
	UseMIMO                 bool `yaml:"use-mimo"`
}

// InvalidConfigError aggregates every invalid configuration field name,
// deduplicated and lexicographically sorted.
type InvalidConfigError struct {
	Fields []string
}

func (e *InvalidConfigError) Error() string {
	quoted := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		quoted[i] = fmt.Sprintf("'%s'", f)
	}
	return fmt.Sprintf("The following configurations are not valid: [%s]", strings.Join(quoted, ", "))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields under their YAML (kebab-case) names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	must(v.RegisterValidation("evendigits", func(fl validator.FieldLevel) bool {
		return len(strconv.FormatInt(fl.Field().Int(), 10))%2 == 0
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// defaults are the out-of-the-box subscriber identity; operators override
// them through the configuration file.
func defaults() Config {
	return Config{
		IMSI: "208930100007487",
		Key:  "5122250214c33e723a5dd523fc145fc0",
		OPC:  "981d464c7c52eb6e5036234984ad0bcf",
		DNN:  "internet",
	}
}

// Parse unmarshals raw YAML over the declared defaults and validates the
// result. The returned error is an *InvalidConfigError for constraint
// violations; YAML syntax errors are returned as-is.
func Parse(raw []byte) (Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing UE configuration: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against its declared constraints.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	seen := make(map[string]struct{}, len(verrs))
	var fields []string
	for _, fe := range verrs {
		name := fe.Field()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return &InvalidConfigError{Fields: fields}
}

// Load reads and validates the configuration file at path. A missing file
// yields the defaults, which are themselves validated.
func Load(fs afero.Fs, path string) (Config, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("checking UE configuration file: %w", err)
	}
	if !exists {
		cfg := defaults()
		if err := Validate(cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("reading UE configuration file: %w", err)
	}
	return Parse(raw)
}
