package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trackdeck/trackdeck/internal/types"
)

// badValue always fails to marshal.
type badValue struct{}

func (badValue) MarshalJSON() ([]byte, error) {
	return nil, fmt.Errorf("refuses to serialize")
}

func TestMarshalListFallback(t *testing.T) {
	assert.Equal(t, "[]", marshalList([]badValue{{}}), "serialization failure stores the empty-array literal")
	assert.Equal(t, "[]", marshalList[string](nil))
	assert.Equal(t, `["a","b"]`, marshalList([]string{"a", "b"}))
}

func TestMarshalMapFallback(t *testing.T) {
	assert.Equal(t, "{}", marshalMap(map[string]badValue{"k": {}}))
	assert.Equal(t, "{}", marshalMap[string, string](nil))
	assert.Equal(t, `{"k":"v"}`, marshalMap(map[string]string{"k": "v"}))
}

func TestUnmarshalList(t *testing.T) {
	assert.Nil(t, unmarshalList[string](""))
	assert.Nil(t, unmarshalList[string]("[]"))
	assert.Nil(t, unmarshalList[string]("{not json"))
	assert.Equal(t, []types.Option{{ID: "1", Name: "Done"}}, unmarshalList[types.Option](`[{"id":"1","name":"Done"}]`))
}
