package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseAllContinuesAfterFailure(t *testing.T) {
	var order []string
	record := func(name string, err error) closer {
		return closer{name, func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}

	closeAll(context.Background(), []closer{
		record("rabbitmq", nil),
		record("redis", errors.New("connection reset")),
		record("postgres", nil),
	})

	assert.Equal(t, []string{"rabbitmq", "redis", "postgres"}, order)
}
