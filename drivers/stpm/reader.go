package stpm

// ReadRequest names a register and where to store its value. Exactly one
// of U32 and I32 should be set.
type ReadRequest struct {
	Reg Reg
	U32 *uint32
	I32 *int32
}

// ReadU32 requests reg into an unsigned destination.
func ReadU32(reg Reg, dst *uint32) ReadRequest { return ReadRequest{Reg: reg, U32: dst} }

// ReadI32 requests reg into a signed destination (two's complement).
func ReadI32(reg Reg, dst *int32) ReadRequest { return ReadRequest{Reg: reg, I32: dst} }

func (r ReadRequest) store(v uint32) {
	switch {
	case r.U32 != nil:
		*r.U32 = v
	case r.I32 != nil:
		*r.I32 = int32(v)
	}
}

// ReadRegisters reads every request in order using len(reqs)+1 frames.
// Frame i requests reqs[i]; the response to frame i+1 lands in reqs[i].
// On error, destinations already filled keep their values and the rest are
// left untouched. An empty list performs no transactions.
func (c *Chip) ReadRegisters(reqs ...ReadRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	if _, err := c.t.Transact(reqs[0].Reg.Addr(), AddrNone, 0); err != nil {
		return err
	}
	for i := range reqs {
		next := AddrNone
		if i+1 < len(reqs) {
			next = reqs[i+1].Reg.Addr()
		}
		v, err := c.t.Transact(next, AddrNone, 0)
		if err != nil {
			return err
		}
		reqs[i].store(v)
	}
	return nil
}

// ReadRegister reads a single 32-bit register.
func (c *Chip) ReadRegister(reg Reg) (uint32, error) {
	var v uint32
	err := c.ReadRegisters(ReadU32(reg, &v))
	return v, err
}
