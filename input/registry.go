// Package input classifies live command traffic against a device's
// decoded InputActions program, recovering which physical input was
// operated and how.
package input

import (
	"bytes"
	"github.com/shimmeringbee/zcl"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/zsc/microcode"
)

// Signature identifies an observed command. Equality for classification is
// exact on endpoint, cluster and command; payload comparison is governed
// by each candidate rule's matcher.
type Signature struct {
	Endpoint zigbee.Endpoint
	Cluster  zigbee.ClusterID
	Command  zcl.CommandIdentifier
	Payload  []byte
}

// Match is the classification outcome: which input, operated how.
type Match struct {
	Input uint8
	Press microcode.PressType
}

type signatureKey struct {
	endpoint zigbee.Endpoint
	cluster  zigbee.ClusterID
	command  zcl.CommandIdentifier
}

// Registry is an immutable lookup table from command signatures to input
// rules. Build a new one and swap it into the correlator when the
// device's microcode changes.
type Registry struct {
	table map[signatureKey][]microcode.Rule
}

// Build constructs a registry from rules in declaration order. Two rules
// with the same signature and equivalent payload matchers collapse to the
// later declaration; this keeps classification deterministic rather than
// treating the duplicate as an error.
func Build(rules []microcode.Rule) *Registry {
	r := &Registry{table: make(map[signatureKey][]microcode.Rule)}

	for _, rule := range rules {
		key := signatureKey{endpoint: rule.Endpoint, cluster: rule.Cluster, command: rule.Command}

		candidates := r.table[key]
		replaced := false

		for i, existing := range candidates {
			if equivalentMatchers(existing, rule) {
				candidates[i] = rule
				replaced = true
				break
			}
		}

		if !replaced {
			candidates = append(candidates, rule)
		}

		r.table[key] = candidates
	}

	return r
}

func equivalentMatchers(a microcode.Rule, b microcode.Rule) bool {
	if a.MatchAnyPayload != b.MatchAnyPayload {
		return false
	}

	return a.MatchAnyPayload || a.Payload == b.Payload
}

// Classify returns the input and press type for an observed signature, or
// false when no rule matches. No match is the common case for device
// traffic and is not an error.
func (r *Registry) Classify(sig Signature) (Match, bool) {
	key := signatureKey{endpoint: sig.Endpoint, cluster: sig.Cluster, command: sig.Command}

	for _, rule := range r.table[key] {
		if payloadMatches(rule, sig.Payload) {
			return Match{Input: rule.Input, Press: rule.Press}, true
		}
	}

	return Match{}, false
}

func payloadMatches(rule microcode.Rule, payload []byte) bool {
	if rule.MatchAnyPayload {
		return true
	}

	return bytes.Equal(payload, []byte{rule.Payload})
}
