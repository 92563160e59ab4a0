// Package params turns a YAML parameter file into gain updates. The file carries the same keys a
// dynamic reconfigure server would: K and D set every joint, K_<i>_joint and damp_<i>_joint set
// joint i. Only values that changed since the last applied file produce an update.
package params

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"go.viam.com/impedance/impedance"
	"go.viam.com/impedance/joint"
)

// AllJoints is the Joint of a Key that addresses every joint.
const AllJoints = -1

var perJointKey = regexp.MustCompile(`^(K|damp)_(\d+)_joint$`)

// Key names one parameter: a gain kind for one joint, or for AllJoints.
type Key struct {
	Kind  impedance.GainKind
	Joint int
}

func (k Key) String() string {
	if k.Joint == AllJoints {
		if k.Kind == impedance.Damping {
			return "D"
		}
		return "K"
	}
	if k.Kind == impedance.Damping {
		return "damp_" + strconv.Itoa(k.Joint) + "_joint"
	}
	return "K_" + strconv.Itoa(k.Joint) + "_joint"
}

// Values is a parsed parameter file.
type Values map[Key]float64

// Change is one parameter that differs from the previously applied file.
type Change struct {
	Key
	Value float64
}

type rawFile struct {
	K        *float64               `mapstructure:"K"`
	D        *float64               `mapstructure:"D"`
	PerJoint map[string]interface{} `mapstructure:",remain"`
}

func decode(input, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Parse reads a parameter file for n joints. Unknown keys, out of range joints and non-finite
// values are errors; an empty file is valid and has no values.
func Parse(data []byte, n int) (Values, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing parameter file")
	}
	var raw rawFile
	if err := decode(doc, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding parameter file")
	}

	out := Values{}
	if raw.K != nil {
		out[Key{impedance.Stiffness, AllJoints}] = *raw.K
	}
	if raw.D != nil {
		out[Key{impedance.Damping, AllJoints}] = *raw.D
	}
	for name, v := range raw.PerJoint {
		m := perJointKey.FindStringSubmatch(name)
		if m == nil {
			return nil, errors.Errorf("unknown parameter %q", name)
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %q", name)
		}
		if err := joint.CheckIndex(idx, n); err != nil {
			return nil, errors.Wrapf(err, "parameter %q", name)
		}
		value, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %q", name)
		}
		kind := impedance.Stiffness
		if m[1] == "damp" {
			kind = impedance.Damping
		}
		out[Key{kind, idx}] = value
	}
	for k, v := range out {
		if err := joint.CheckFinite(v); err != nil {
			return nil, errors.Wrapf(err, "parameter %q", k)
		}
	}
	return out, nil
}

// Diff returns the values in v that are new or different from prev. All joint values come first
// so that per joint values in the same file override them, then joints in order, stiffness
// before damping. A changed all joint value also repeats the per joint values of its kind.
func (v Values) Diff(prev Values) []Change {
	differs := func(k Key) bool {
		old, ok := prev[k]
		return !ok || old != v[k]
	}
	changed := lo.Filter(lo.Keys(v), func(k Key, _ int) bool {
		return differs(k) || (k.Joint != AllJoints && differs(Key{k.Kind, AllJoints}) && lo.HasKey(v, Key{k.Kind, AllJoints}))
	})
	sort.Slice(changed, func(i, j int) bool {
		if changed[i].Joint != changed[j].Joint {
			return changed[i].Joint < changed[j].Joint
		}
		return changed[i].Kind < changed[j].Kind
	})
	return lo.Map(changed, func(k Key, _ int) Change {
		return Change{Key: k, Value: v[k]}
	})
}

// GainSetter receives parameter changes. *impedance.GainStore implements it.
type GainSetter interface {
	SetUniform(kind impedance.GainKind, value float64) error
	SetJoint(kind impedance.GainKind, index int, value float64) error
}

// Apply sends each change to gains, one call per change. It keeps going past rejected changes
// and returns them all.
func Apply(gains GainSetter, changes []Change) error {
	var errs error
	for _, c := range changes {
		var err error
		if c.Joint == AllJoints {
			err = gains.SetUniform(c.Kind, c.Value)
		} else {
			err = gains.SetJoint(c.Kind, c.Joint, c.Value)
		}
		errs = multierr.Append(errs, errors.Wrapf(err, "applying %s", c.Key))
	}
	return errs
}
