package cloudsync

import (
	"fmt"

	"github.com/lucasjones/reggen"
)

// TopicPattern is the shape of generated sync topics.
const TopicPattern = `cig_user_[a-z0-9]{8}`

// NewTopic generates a fresh topic name.
func NewTopic() (string, error) {
	g, err := reggen.NewGenerator(TopicPattern)
	if err != nil {
		return "", fmt.Errorf("failed to build topic generator: %w", err)
	}
	return g.Generate(8), nil
}
