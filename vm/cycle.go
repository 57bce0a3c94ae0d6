package vm

// cycleCost returns the number of cycles an instruction consumes. The
// table mirrors a simple fixed-point-unit cost model: most integer ops are
// single-cycle, multiply/divide and atomics cost more, and MOP fused forms
// are cheaper than the sum of the instructions they replace (that is the
// whole point of fusing them).
func cycleCost(inst Instruction) uint64 {
	switch inst.ISA {
	case "M":
		switch {
		case inst.Mnemonic == "mul" || inst.Mnemonic == "mulw":
			return 5
		case inst.Mnemonic == "mulh" || inst.Mnemonic == "mulhsu" || inst.Mnemonic == "mulhu":
			return 5
		default: // div/divu/rem/remu and the W-variants
			return 16
		}
	case "A":
		return 2
	case "B":
		return 1
	case "MOP":
		return 2
	case "RVC":
		return 1
	default:
		switch inst.Mnemonic {
		case "fence", "ecall", "ebreak":
			return 1
		default:
			return 1
		}
	}
}
