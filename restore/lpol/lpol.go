// Package lpol carries the lpol_file template: the unsigned local
// policy payload restore_send_restore_local_policy wraps in an
// "Ap,LocalPolicy" component before personalization. idevicerestore
// embeds this as a static byte array; the real bytes aren't present
// anywhere under the retrieved example pack (only the call site that
// consumes them, restore.c:3469-3471), so Template is a minimal,
// correctly-shaped IM4P placeholder ('lpol' tag, empty payload) rather
// than a guess at the real array's contents.
package lpol

// Template is the default local policy payload handed to the
// personalizer when the caller hasn't supplied its own.
var Template = buildTemplate()

func buildTemplate() []byte {
	// IM4P: sequence header, 4-char tag, then an empty OCTET STRING
	// payload. Shaped like a real IM4P but carries no policy content.
	return []byte{
		0x30, 0x0e, // SEQUENCE, 14 bytes
		0x16, 0x04, 'I', 'M', '4', 'P', // IA5String "IM4P"
		0x16, 0x04, 'l', 'p', 'o', 'l', // IA5String "lpol" type tag
		0x04, 0x00, // OCTET STRING, empty payload
	}
}
