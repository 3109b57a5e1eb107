package stpm

import "strconv"

// Reg is a logical register index. The device address of a register is
// twice its index; the MSW half of a 32-bit register sits at address+1.
type Reg uint8

const (
	DSP_CR1 Reg = iota
	DSP_CR2
	DSP_CR3
	DSP_CR4
	DSP_CR5
	DSP_CR6
	DSP_CR7
	DSP_CR8
	DSP_CR9
	DSP_CR10
	DSP_CR11
	DSP_CR12
	DFE_CR1
	DFE_CR2
	DSP_IRQ1
	DSP_IRQ2
	DSP_SR1
	DSP_SR2
	US_REG1
	US_REG2
	US_REG3
	DSP_EV1
	DSP_EV2
	DSP_REG1
	DSP_REG2
	DSP_REG3
	DSP_REG4
	DSP_REG5
	DSP_REG6
	DSP_REG7
	DSP_REG8
	DSP_REG9
)

// Indices 32..35 are reserved on the device.
const (
	DSP_REG14 Reg = iota + 36
	DSP_REG15
	DSP_REG16
	DSP_REG17
	DSP_REG18
	DSP_REG19
	PH1_REG1
	PH1_REG2
	PH1_REG3
	PH1_REG4
	PH1_REG5
	PH1_REG6
	PH1_REG7
	PH1_REG8
	PH1_REG9
	PH1_REG10
	PH1_REG11
	PH1_REG12
	PH2_REG1
	PH2_REG2
	PH2_REG3
	PH2_REG4
	PH2_REG5
	PH2_REG6
	PH2_REG7
	PH2_REG8
	PH2_REG9
	PH2_REG10
	PH2_REG11
	PH2_REG12
	TOT_REG1
	TOT_REG2
	TOT_REG3
	TOT_REG4
)

// Addr returns the device address of the register's low half.
func (r Reg) Addr() byte { return byte(r) * 2 }

var regNames = map[Reg]string{
	DSP_CR1: "DSP_CR1", DSP_CR2: "DSP_CR2", DSP_CR3: "DSP_CR3", DSP_CR4: "DSP_CR4",
	DSP_CR5: "DSP_CR5", DSP_CR6: "DSP_CR6", DSP_CR7: "DSP_CR7", DSP_CR8: "DSP_CR8",
	DSP_CR9: "DSP_CR9", DSP_CR10: "DSP_CR10", DSP_CR11: "DSP_CR11", DSP_CR12: "DSP_CR12",
	DFE_CR1: "DFE_CR1", DFE_CR2: "DFE_CR2", DSP_IRQ1: "DSP_IRQ1", DSP_IRQ2: "DSP_IRQ2",
	DSP_SR1: "DSP_SR1", DSP_SR2: "DSP_SR2",
	US_REG1: "US_REG1", US_REG2: "US_REG2", US_REG3: "US_REG3",
	DSP_EV1: "DSP_EV1", DSP_EV2: "DSP_EV2",
	DSP_REG1: "DSP_REG1", DSP_REG2: "DSP_REG2", DSP_REG3: "DSP_REG3",
	DSP_REG4: "DSP_REG4", DSP_REG5: "DSP_REG5", DSP_REG6: "DSP_REG6",
	DSP_REG7: "DSP_REG7", DSP_REG8: "DSP_REG8", DSP_REG9: "DSP_REG9",
	DSP_REG14: "DSP_REG14", DSP_REG15: "DSP_REG15", DSP_REG16: "DSP_REG16",
	DSP_REG17: "DSP_REG17", DSP_REG18: "DSP_REG18", DSP_REG19: "DSP_REG19",
	PH1_REG1: "PH1_REG1", PH1_REG5: "PH1_REG5", PH1_REG7: "PH1_REG7",
	PH2_REG1: "PH2_REG1", PH2_REG5: "PH2_REG5", PH2_REG7: "PH2_REG7",
	TOT_REG1: "TOT_REG1", TOT_REG2: "TOT_REG2", TOT_REG3: "TOT_REG3", TOT_REG4: "TOT_REG4",
}

func (r Reg) String() string {
	if s, ok := regNames[r]; ok {
		return s
	}
	return "REG" + strconv.Itoa(int(r))
}
