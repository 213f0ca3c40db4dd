package kafka

import (
	"crypto/sha256"
	"crypto/sha512"

	"github.com/xdg-go/scram"
)

// Grounded on internal/sinks/kafka_scram.go, adapted into this package so
// the kafka sink has no dependency on the teacher's pkg/types-based sinks
// package once that package is trimmed.
var (
	hashSHA256 scram.HashGeneratorFcn = sha256.New
	hashSHA512 scram.HashGeneratorFcn = sha512.New
)

// xdgSCRAMClient implements sarama.SCRAMClient via github.com/xdg-go/scram.
type xdgSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

func (x *xdgSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

func (x *xdgSCRAMClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

func (x *xdgSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}
