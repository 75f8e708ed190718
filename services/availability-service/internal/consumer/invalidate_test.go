package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/tourbook/libs/runtime"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvalidator struct {
	products []string
	packages []string
	err      error
}

func (f *fakeInvalidator) InvalidateProduct(_ context.Context, id string) (int, error) {
	f.products = append(f.products, id)
	return 3, f.err
}

func (f *fakeInvalidator) InvalidatePackage(_ context.Context, id string) (int, error) {
	f.packages = append(f.packages, id)
	return 1, nil
}

func message(value string) kafka.Message {
	return kafka.Message{
		Topic: AvailabilityChangedTopic,
		Value: []byte(value),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("evt-1")},
		},
	}
}

func TestInvalidateCache(t *testing.T) {
	inv := &fakeInvalidator{}
	h := InvalidateCache(inv, runtime.NewDiscardLogger())

	err := h(context.Background(), message(`{"product_id":"tour-1","package_ids":["std"," ","vip"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"tour-1"}, inv.products)
	assert.Equal(t, []string{"std", "vip"}, inv.packages)
}

func TestInvalidateCacheSkipsMalformed(t *testing.T) {
	inv := &fakeInvalidator{}
	h := InvalidateCache(inv, runtime.NewDiscardLogger())

	assert.NoError(t, h(context.Background(), message(`not json`)))
	assert.NoError(t, h(context.Background(), message(`{"product_id":"  "}`)))
	assert.Empty(t, inv.products)
	assert.Empty(t, inv.packages)
}

func TestInvalidateCacheReportsErrors(t *testing.T) {
	boom := errors.New("redis down")
	inv := &fakeInvalidator{err: boom}
	h := InvalidateCache(inv, runtime.NewDiscardLogger())

	err := h(context.Background(), message(`{"product_id":"tour-1","package_ids":["std"]}`))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"std"}, inv.packages)
}
