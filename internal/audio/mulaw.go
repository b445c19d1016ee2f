// Package audio converts between the 8-bit mu-law telephony codec and
// 16-bit linear PCM. Both directions are pure byte-to-byte transforms;
// telephony frames arrive and leave as mu-law, the speech services speak
// linear PCM.
package audio

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MuLawDecode expands 8kHz mu-law bytes into 16-bit little-endian linear
// PCM. The output is exactly twice the length of the input, one sample
// per input byte.
func MuLawDecode(mulaw []byte) []byte {
	pcm := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		sample := DecodeSample(b)
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}
	return pcm
}

// DecodeSample expands a single mu-law byte.
func DecodeSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0f
	sample := (int16(mantissa)<<1 + 1) << (exponent + 2)
	if sign != 0 {
		return -sample
	}
	return sample
}

// MuLawEncode compands 16-bit little-endian linear PCM into mu-law. The
// output is half the length of the input. A trailing odd byte is ignored.
func MuLawEncode(pcm []byte) []byte {
	mulaw := make([]byte, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		mulaw[i/2] = EncodeSample(sample)
	}
	return mulaw
}

// EncodeSample compands a single linear sample.
func EncodeSample(sample int16) byte {
	s := int(sample)
	sign := (s >> 8) & 0x80
	if sign != 0 {
		s = -s
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias
	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; exponent-- {
		mask >>= 1
	}
	mantissa := (s >> (exponent + 3)) & 0x0f
	return ^byte(sign | exponent<<4 | mantissa)
}
