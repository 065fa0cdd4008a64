package tcp

import (
	"encoding/binary"
	"errors"
)

const (
	tlsHandshakeContentType = 0x16
	tlsHandshakeTypeClient  = 0x01
	sniExtensionType        = 0x0000
	sniHostNameType         = 0x00
)

var errNotTLS = errors.New("tcp: not a TLS ClientHello")

// peekSNI extracts the SNI hostname from a TLS ClientHello record, reading
// only the bytes already given (the caller is expected to have peeked,
// not consumed, them from the socket, so TLS passthrough still sees the
// full handshake). Returns errNotTLS when record is not a TLS handshake;
// returns ("", nil) when it is TLS but carries no SNI extension.
func peekSNI(record []byte) (string, error) {
	if len(record) < 5 {
		return "", errNotTLS
	}
	if record[0] != tlsHandshakeContentType {
		return "", errNotTLS
	}

	recordLength := int(binary.BigEndian.Uint16(record[3:5]))
	end := 5 + recordLength
	if end > len(record) {
		end = len(record)
	}

	return parseClientHello(record[5:end])
}

func parseClientHello(data []byte) (string, error) {
	if len(data) < 38 {
		return "", nil
	}
	if data[0] != tlsHandshakeTypeClient {
		return "", nil
	}

	// handshake type(1) + length(3) + version(2) + random(32)
	offset := 1 + 3 + 2 + 32
	if offset >= len(data) {
		return "", nil
	}

	sessionIDLen := int(data[offset])
	offset += 1 + sessionIDLen
	if offset+2 > len(data) {
		return "", nil
	}

	cipherSuitesLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2 + cipherSuitesLen
	if offset+1 > len(data) {
		return "", nil
	}

	compressionLen := int(data[offset])
	offset += 1 + compressionLen
	if offset+2 > len(data) {
		return "", nil
	}

	extensionsLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	extensionsEnd := offset + extensionsLen
	if extensionsEnd > len(data) {
		return "", nil
	}

	for offset+4 <= extensionsEnd {
		extType := binary.BigEndian.Uint16(data[offset : offset+2])
		extLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+extLen > len(data) {
			return "", nil
		}

		if extType == sniExtensionType {
			return parseSNIExtension(data[offset : offset+extLen])
		}
		offset += extLen
	}

	return "", nil
}

func parseSNIExtension(data []byte) (string, error) {
	if len(data) < 5 {
		return "", nil
	}
	nameType := data[2]
	if nameType != sniHostNameType {
		return "", nil
	}
	nameLen := int(binary.BigEndian.Uint16(data[3:5]))
	if 5+nameLen > len(data) {
		return "", nil
	}
	return string(data[5 : 5+nameLen]), nil
}
