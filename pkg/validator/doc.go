// Package validator implements the rule-driven checker of process inputs
// and pending outputs. A static recipe maps process name to input/output
// rule specs; a violated rule feeds the audit system under a
// "<process>:<input|output>:<field>" key.
package validator
