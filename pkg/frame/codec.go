package frame

import (
	"errors"
	"fmt"

	"github.com/hed1ad/pulseguard/pkg/aead"
)

// Codec runs a line through decode, open and parse.
type Codec struct {
	marker string
	tag    string
	auth   *aead.Authenticator
}

// NewCodec returns a Codec. Empty marker or tag select the defaults.
func NewCodec(auth *aead.Authenticator, marker, tag string) *Codec {
	if marker == "" {
		marker = DefaultMarker
	}
	if tag == "" {
		tag = DefaultTag
	}
	return &Codec{marker: marker, tag: tag, auth: auth}
}

// Decode returns the sensor value carried by line.
func (c *Codec) Decode(line string) (float64, error) {
	ciphertext, err := DecodeFrame(line, c.marker)
	if err != nil {
		return 0, err
	}

	plaintext, err := c.auth.Open(ciphertext)
	if err != nil {
		if errors.Is(err, aead.ErrAuthentication) {
			return 0, &Error{Kind: KindAuthentication, Err: err}
		}
		return 0, &Error{Kind: KindDecryption, Err: err}
	}

	return ParseValue(plaintext, c.tag)
}

// Encode seals v the way the sensor does and formats it as a transport line.
func (c *Codec) Encode(v float64) string {
	return c.EncodeText(fmt.Sprintf("%s%g", c.tag, v))
}

// EncodeText seals an arbitrary plaintext into a transport line.
func (c *Codec) EncodeText(plaintext string) string {
	return fmt.Sprintf("%s %X", c.marker, c.auth.Seal([]byte(plaintext)))
}
