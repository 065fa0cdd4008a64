package tcp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSNIExtension(t *testing.T) {
	ext := []byte{
		0x00, 0x0e, // server name list length = 14
		0x00,       // name type = host_name
		0x00, 0x0b, // name length = 11
	}
	ext = append(ext, []byte("example.com")...)

	sni, err := parseSNIExtension(ext)
	require.NoError(t, err)
	assert.Equal(t, "example.com", sni)
}

func buildClientHelloRecord(sni string) []byte {
	sniExt := []byte{0x00, byte(3 + len(sni))}
	sniExt = append(sniExt, 0x00)
	nameLen := make([]byte, 2)
	binary.BigEndian.PutUint16(nameLen, uint16(len(sni)))
	sniExt = append(sniExt, nameLen...)
	sniExt = append(sniExt, []byte(sni)...)

	extension := []byte{0x00, 0x00} // extension type: server_name
	extLen := make([]byte, 2)
	binary.BigEndian.PutUint16(extLen, uint16(len(sniExt)))
	extension = append(extension, extLen...)
	extension = append(extension, sniExt...)

	body := []byte{0x01}                      // handshake type: ClientHello
	body = append(body, 0, 0, 0)               // length (unused by parser)
	body = append(body, 0x03, 0x03)            // version
	body = append(body, make([]byte, 32)...)   // random
	body = append(body, 0x00)                  // session id length
	body = append(body, 0x00, 0x00)            // cipher suites length
	body = append(body, 0x00)                  // compression methods length

	extensionsLen := make([]byte, 2)
	binary.BigEndian.PutUint16(extensionsLen, uint16(len(extension)))
	body = append(body, extensionsLen...)
	body = append(body, extension...)

	record := []byte{0x16, 0x03, 0x01}
	recordLen := make([]byte, 2)
	binary.BigEndian.PutUint16(recordLen, uint16(len(body)))
	record = append(record, recordLen...)
	record = append(record, body...)
	return record
}

func TestPeekSNIFromClientHello(t *testing.T) {
	record := buildClientHelloRecord("example.com")
	sni, err := peekSNI(record)
	require.NoError(t, err)
	assert.Equal(t, "example.com", sni)
}

func TestPeekSNINotTLS(t *testing.T) {
	_, err := peekSNI([]byte("GET / HTTP/1.1\r\n"))
	assert.ErrorIs(t, err, errNotTLS)
}

func TestPeekSNITooShort(t *testing.T) {
	_, err := peekSNI([]byte{0x16, 0x03})
	assert.ErrorIs(t, err, errNotTLS)
}
