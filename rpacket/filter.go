package rpacket

import "golang.org/x/exp/slices"

// Copy builds a new packet carrying the same Code, Identifier, and
// Authenticator as p, with its AVPs filtered by name: only
// positiveFilter's names when non-nil, everything except
// negativeFilter's names when only that one is non-nil, or every AVP
// when both are nil. Generalized from the teacher's
// RadiusPacket.Copy, used when proxying a request or building a
// response template from it without forwarding every attribute as-is.
func (p *Packet) Copy(positiveFilter, negativeFilter []string) *Packet {
	out := &Packet{
		Code:          p.Code,
		Identifier:    p.Identifier,
		Authenticator: p.Authenticator,
	}

	for _, a := range p.AVPs {
		switch {
		case positiveFilter != nil:
			if slices.Contains(positiveFilter, a.Name) {
				out.AVPs = append(out.AVPs, a)
			}
		case negativeFilter != nil:
			if !slices.Contains(negativeFilter, a.Name) {
				out.AVPs = append(out.AVPs, a)
			}
		default:
			out.AVPs = append(out.AVPs, a)
		}
	}

	return out
}
