package chat

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Engine produces the assistant's answer for a submitted question.
// ok is false when the engine has nothing to say.
type Engine interface {
	Answer(ctx context.Context, question string) (answer string, ok bool)
}

// KnownQuestion is one entry of the fixed question/answer table.
type KnownQuestion struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// KnowledgeBase answers by exact string equality against a static table.
type KnowledgeBase struct {
	entries []KnownQuestion
}

//go:embed knowledge.yaml
var defaultKnowledge []byte

// DefaultKnowledge returns the table shipped with the binary.
func DefaultKnowledge() *KnowledgeBase {
	kb, err := LoadKnowledge(bytes.NewReader(defaultKnowledge))
	if err != nil {
		panic(fmt.Sprintf("chat: embedded knowledge base: %v", err))
	}
	return kb
}

// LoadKnowledge parses a YAML list of question/answer pairs.
func LoadKnowledge(r io.Reader) (*KnowledgeBase, error) {
	var entries []KnownQuestion
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("knowledge base is empty")
		}
		return nil, fmt.Errorf("decode knowledge base: %w", err)
	}
	for i, e := range entries {
		if e.Question == "" || e.Answer == "" {
			return nil, fmt.Errorf("knowledge entry %d: question and answer are required", i)
		}
	}
	return NewKnowledgeBase(entries), nil
}

// NewKnowledgeBase copies entries; declaration order decides ties.
func NewKnowledgeBase(entries []KnownQuestion) *KnowledgeBase {
	out := make([]KnownQuestion, len(entries))
	copy(out, entries)
	return &KnowledgeBase{entries: out}
}

// Questions lists the known questions in declaration order (the suggestions).
func (k *KnowledgeBase) Questions() []string {
	qs := make([]string, 0, len(k.entries))
	for _, e := range k.entries {
		qs = append(qs, e.Question)
	}
	return qs
}

// Answer is case-sensitive and does not trim; the first declared match wins.
func (k *KnowledgeBase) Answer(_ context.Context, question string) (string, bool) {
	for _, e := range k.entries {
		if e.Question == question {
			return e.Answer, true
		}
	}
	return "", false
}
