package chidb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBytesLayout(t *testing.T) {
	r := NewRecord(
		NewNullField(),
		NewInt32Field(1337),
		NewTextField("hi"),
	)

	buf, err := r.Bytes()
	require.Nil(t, err)

	want := []byte{
		4,          // header length, including itself
		0, 4, 0x11, // type codes: null, int32, text(len 2 -> 13+4=17=0x11)
		0x00, 0x00, 0x05, 0x39, // 1337 big-endian
		'h', 'i',
	}
	assert.Equal(t, want, buf)
}

func TestRecordRoundTrip(t *testing.T) {
	r := NewRecord(
		NewInt8Field(-5),
		NewInt16Field(-1000),
		NewInt32Field(-70000),
		NewTextField("databases"),
		NewNullField(),
	)

	buf, err := r.Bytes()
	require.Nil(t, err)

	got, err := ParseRecord(buf)
	require.Nil(t, err)
	require.Len(t, got.Fields, 5)

	assert.Equal(t, int8(-5), got.Fields[0].Data)
	assert.Equal(t, int16(-1000), got.Fields[1].Data)
	assert.Equal(t, int32(-70000), got.Fields[2].Data)
	assert.Equal(t, "databases", got.Fields[3].Data)
	assert.True(t, got.Fields[4].IsNull())
}

func TestParseRecordRejectsTruncatedHeader(t *testing.T) {
	_, err := ParseRecord([]byte{5, 0, 0})
	assert.Error(t, err)
}

func TestParseRecordRejectsInvalidTypeCode(t *testing.T) {
	_, err := ParseRecord([]byte{2, 3})
	assert.Error(t, err)
}
