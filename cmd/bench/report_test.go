package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatThroughputLine(t *testing.T) {
	line := formatThroughputLine("Insert", 1000, 5000)
	assert.Equal(t, "Insert took 1000 us, throughput = 5.0000 ops/us", line)
}
