package directive

import "github.com/google/uuid"

// IDGenerator supplies values for fields marked for identifier generation
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random v4 UUIDs
type UUIDGenerator struct{}

// NewID implements IDGenerator
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// IDGeneratorFunc adapts a function to IDGenerator
type IDGeneratorFunc func() string

// NewID implements IDGenerator
func (f IDGeneratorFunc) NewID() string {
	return f()
}
