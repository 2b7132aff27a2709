package motion

import "fmt"

// Config holds the detection thresholds. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// Noise reduction
	BlurSize  int     `yaml:"blur_size" json:"blur_size"`
	BlurSigma float64 `yaml:"blur_sigma" json:"blur_sigma"`

	// Intensity change (0-255) a pixel must exceed to count as changed
	DiffThreshold float32 `yaml:"diff_threshold" json:"diff_threshold"`

	// Blob merging
	DilationSize       int `yaml:"dilation_size" json:"dilation_size"`
	DilationIterations int `yaml:"dilation_iterations" json:"dilation_iterations"`

	// Trigger rule, as fractions of the frame area
	MaxAreaFraction   float64 `yaml:"max_area_fraction" json:"max_area_fraction"`
	TotalAreaFraction float64 `yaml:"total_area_fraction" json:"total_area_fraction"`
}

// DefaultConfig returns the stock detector tuning.
func DefaultConfig() Config {
	return Config{
		BlurSize:           5,
		BlurSigma:          5,
		DiffThreshold:      15,
		DilationSize:       7,
		DilationIterations: 2,
		MaxAreaFraction:    0.05,
		TotalAreaFraction:  0.10,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.BlurSize <= 0 || c.BlurSize%2 == 0 {
		return fmt.Errorf("motion.blur_size must be a positive odd number, got %d", c.BlurSize)
	}
	if c.BlurSigma < 0 {
		return fmt.Errorf("motion.blur_sigma must not be negative, got %v", c.BlurSigma)
	}
	if c.DiffThreshold < 0 || c.DiffThreshold > 255 {
		return fmt.Errorf("motion.diff_threshold must be within 0-255, got %v", c.DiffThreshold)
	}
	if c.DilationSize <= 0 {
		return fmt.Errorf("motion.dilation_size must be positive, got %d", c.DilationSize)
	}
	if c.DilationIterations < 0 {
		return fmt.Errorf("motion.dilation_iterations must not be negative, got %d", c.DilationIterations)
	}
	if c.MaxAreaFraction <= 0 || c.MaxAreaFraction > 1 {
		return fmt.Errorf("motion.max_area_fraction must be within (0,1], got %v", c.MaxAreaFraction)
	}
	if c.TotalAreaFraction <= 0 || c.TotalAreaFraction > 1 {
		return fmt.Errorf("motion.total_area_fraction must be within (0,1], got %v", c.TotalAreaFraction)
	}
	return nil
}
