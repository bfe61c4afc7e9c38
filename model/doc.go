// Package model abstracts LLM providers behind a single streaming text-turn
// interface. The remote transport bridge and the planner drive one turn at a
// time through a Model; concrete adapters for Anthropic and OpenAI live in
// subpackages, and MockModel serves tests.
package model
