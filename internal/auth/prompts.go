package auth

import (
	"math/rand/v2"
	"sync"
	"time"
)

// LoginPrompts are read aloud to answer a login challenge.
var LoginPrompts = []string{
	"Authentication requires voice verification for security",
	"Please speak clearly for voice pattern matching",
	"Secure login using biometric voice recognition",
	"Voice authentication ensures account protection",
}

// RegistrationPrompts are read aloud while recording an enrollment sample.
var RegistrationPrompts = []string{
	"The quick brown fox jumps over the lazy dog",
	"Machine learning is transforming education technology",
	"Voice recognition provides secure authentication methods",
	"Artificial intelligence enhances online learning experiences",
}

// PromptPool draws prompts uniformly at random. Safe for concurrent use.
type PromptPool struct {
	mu      sync.Mutex
	prompts []string
	rng     *rand.Rand
}

// NewPromptPool copies prompts. A zero seed seeds from the clock.
func NewPromptPool(prompts []string, seed uint64) *PromptPool {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &PromptPool{
		prompts: append([]string(nil), prompts...),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (p *PromptPool) Draw() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[p.rng.IntN(len(p.prompts))]
}

func (p *PromptPool) Contains(prompt string) bool {
	for _, s := range p.prompts {
		if s == prompt {
			return true
		}
	}
	return false
}
