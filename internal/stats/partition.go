package stats

import (
	"fmt"
	"sort"
	"strings"
)

// Partition holds the fixed normalization constants of one benchmark split.
// They describe the benchmark size, not the input file, so a short input
// under-reports rather than failing.
type Partition struct {
	Name             string `json:"name" yaml:"name"`
	Delivery         int    `json:"delivery" yaml:"delivery"`
	CommonsenseMicro int    `json:"commonsense_micro" yaml:"commonsense_micro"`
	CommonsenseMacro int    `json:"commonsense_macro" yaml:"commonsense_macro"`
	HardMicro        int    `json:"hard_micro" yaml:"hard_micro"`
	HardMacro        int    `json:"hard_macro" yaml:"hard_macro"`
	Final            int    `json:"final" yaml:"final"`
}

// DefaultPartitions returns the built-in benchmark splits.
func DefaultPartitions() map[string]Partition {
	return map[string]Partition{
		"step": {Name: "step", Delivery: 294, CommonsenseMicro: 2940, CommonsenseMacro: 294, HardMicro: 690, HardMacro: 294, Final: 294},
		"day":  {Name: "day", Delivery: 295, CommonsenseMicro: 2950, CommonsenseMacro: 295, HardMicro: 719, HardMacro: 295, Final: 307},
		"plan": {Name: "plan", Delivery: 231, CommonsenseMicro: 2310, CommonsenseMacro: 231, HardMicro: 586, HardMacro: 231, Final: 231},
	}
}

// LookupPartition resolves a set type against a partition table.
func LookupPartition(partitions map[string]Partition, name string) (Partition, error) {
	p, ok := partitions[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		names := make([]string, 0, len(partitions))
		for n := range partitions {
			names = append(names, n)
		}
		sort.Strings(names)
		return Partition{}, fmt.Errorf("unknown set type %q (available: %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}
