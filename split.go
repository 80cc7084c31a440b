package yolomark

// Train/val partitioning.

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// ErrInvalidSplit is returned for a train fraction outside [0, 1].
var ErrInvalidSplit = errors.New("train split must be a number in [0, 1]")

// SplitMode selects how images are assigned to the train and val subsets.
type SplitMode int

// The split modes.
const (
	// BernoulliSplit draws one uniform value per image and assigns it to train if the value is
	// below the train fraction. The realised ratio varies around the fraction.
	BernoulliSplit SplitMode = iota
	// FixedSplit shuffles the images and assigns exactly round(n*fraction) of them to train.
	FixedSplit
)

// ParseSplitMode parses "bernoulli" or "fixed".
func ParseSplitMode(s string) (SplitMode, error) {
	switch strings.ToLower(s) {
	case "bernoulli", "":
		return BernoulliSplit, nil
	case "fixed":
		return FixedSplit, nil
	}
	return BernoulliSplit, fmt.Errorf("unknown split mode %q", s)
}

func (m SplitMode) String() string {
	if m == FixedSplit {
		return "fixed"
	}
	return "bernoulli"
}

// Subset names, also used as directory names in exports.
const (
	TrainSubset = "train"
	ValSubset   = "val"
)

// SplitOptions controls Partition.
type SplitOptions struct {
	TrainFraction float64
	Mode          SplitMode
	Seed          *int64 // Nil seeds from the clock.
}

// ValidateTrainFraction returns ErrInvalidSplit unless f is a finite number in [0, 1].
func ValidateTrainFraction(f float64) error {
	if math.IsNaN(f) || f < 0 || f > 1 {
		return ErrInvalidSplit
	}
	return nil
}

// Partition assigns every image to exactly one of train or val. The relative order of images is
// kept within each subset.
func Partition(images []string, opts SplitOptions) (train, val []string, err error) {
	if err := ValidateTrainFraction(opts.TrainFraction); err != nil {
		return nil, nil, err
	}

	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	// Allocate slightly more than the expected size for each subset.
	n := len(images)
	train = make([]string, 0, int(1.05*opts.TrainFraction*float64(n)))
	val = make([]string, 0, int(1.05*(1-opts.TrainFraction)*float64(n)))

	switch opts.Mode {
	case FixedSplit:
		numTrain := int(math.Round(float64(n) * opts.TrainFraction))
		inTrain := make([]bool, n)
		for _, i := range rng.Perm(n)[:numTrain] {
			inTrain[i] = true
		}
		for i, image := range images {
			if inTrain[i] {
				train = append(train, image)
			} else {
				val = append(val, image)
			}
		}
	default:
		for _, image := range images {
			if rng.Float64() < opts.TrainFraction {
				train = append(train, image)
			} else {
				val = append(val, image)
			}
		}
	}

	return train, val, nil
}
