package token

import qrcode "github.com/skip2/go-qrcode"

// QRPNG renders the token's wire payload as a PNG of size x size pixels
// for the lecturer's session screen.
func QRPNG(t Token, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	raw, err := Encode(t)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(string(raw), qrcode.Medium, size)
}
