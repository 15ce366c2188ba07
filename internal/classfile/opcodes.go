package classfile

import "fmt"

// Opcode is a JVM instruction opcode.
type Opcode byte

// Opcodes the transform inspects or emits. The full mnemonic table lives in
// opcodeNames; only the instructions referenced by name in code get constants.
const (
	OpNop             Opcode = 0x00
	OpAconstNull      Opcode = 0x01
	OpLdc             Opcode = 0x12
	OpLdcW            Opcode = 0x13
	OpLdc2W           Opcode = 0x14
	OpIload           Opcode = 0x15
	OpLload           Opcode = 0x16
	OpFload           Opcode = 0x17
	OpDload           Opcode = 0x18
	OpAload           Opcode = 0x19
	OpIload0          Opcode = 0x1a
	OpLload0          Opcode = 0x1e
	OpFload0          Opcode = 0x22
	OpDload0          Opcode = 0x26
	OpAload0          Opcode = 0x2a
	OpPop             Opcode = 0x57
	OpPop2            Opcode = 0x58
	OpDup             Opcode = 0x59
	OpIinc            Opcode = 0x84
	OpTableswitch     Opcode = 0xaa
	OpLookupswitch    Opcode = 0xab
	OpIreturn         Opcode = 0xac
	OpLreturn         Opcode = 0xad
	OpFreturn         Opcode = 0xae
	OpDreturn         Opcode = 0xaf
	OpAreturn         Opcode = 0xb0
	OpReturn          Opcode = 0xb1
	OpGetstatic       Opcode = 0xb2
	OpPutstatic       Opcode = 0xb3
	OpGetfield        Opcode = 0xb4
	OpPutfield        Opcode = 0xb5
	OpInvokevirtual   Opcode = 0xb6
	OpInvokespecial   Opcode = 0xb7
	OpInvokestatic    Opcode = 0xb8
	OpInvokeinterface Opcode = 0xb9
	OpInvokedynamic   Opcode = 0xba
	OpNew             Opcode = 0xbb
	OpAnewarray       Opcode = 0xbd
	OpAthrow          Opcode = 0xbf
	OpCheckcast       Opcode = 0xc0
	OpInstanceof      Opcode = 0xc1
	OpWide            Opcode = 0xc4
	OpMultianewarray  Opcode = 0xc5
)

var opcodeNames = [...]string{
	"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2", "iconst_3", "iconst_4",
	"iconst_5", "lconst_0", "lconst_1", "fconst_0", "fconst_1", "fconst_2", "dconst_0", "dconst_1",
	"bipush", "sipush", "ldc", "ldc_w", "ldc2_w", "iload", "lload", "fload",
	"dload", "aload", "iload_0", "iload_1", "iload_2", "iload_3", "lload_0", "lload_1",
	"lload_2", "lload_3", "fload_0", "fload_1", "fload_2", "fload_3", "dload_0", "dload_1",
	"dload_2", "dload_3", "aload_0", "aload_1", "aload_2", "aload_3", "iaload", "laload",
	"faload", "daload", "aaload", "baload", "caload", "saload", "istore", "lstore",
	"fstore", "dstore", "astore", "istore_0", "istore_1", "istore_2", "istore_3", "lstore_0",
	"lstore_1", "lstore_2", "lstore_3", "fstore_0", "fstore_1", "fstore_2", "fstore_3", "dstore_0",
	"dstore_1", "dstore_2", "dstore_3", "astore_0", "astore_1", "astore_2", "astore_3", "iastore",
	"lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore", "pop",
	"pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap",
	"iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub",
	"imul", "lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv",
	"irem", "lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg",
	"ishl", "lshl", "ishr", "lshr", "iushr", "lushr", "iand", "land",
	"ior", "lor", "ixor", "lxor", "iinc", "i2l", "i2f", "i2d",
	"l2i", "l2f", "l2d", "f2i", "f2l", "f2d", "d2i", "d2l",
	"d2f", "i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg", "dcmpl",
	"dcmpg", "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle", "if_icmpeq",
	"if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple", "if_acmpeq", "if_acmpne", "goto",
	"jsr", "ret", "tableswitch", "lookupswitch", "ireturn", "lreturn", "freturn", "dreturn",
	"areturn", "return", "getstatic", "putstatic", "getfield", "putfield", "invokevirtual", "invokespecial",
	"invokestatic", "invokeinterface", "invokedynamic", "new", "newarray", "anewarray", "arraylength", "athrow",
	"checkcast", "instanceof", "monitorenter", "monitorexit", "wide", "multianewarray", "ifnull", "ifnonnull",
	"goto_w", "jsr_w", "breakpoint",
}

// String returns the mnemonic.
func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	switch op {
	case 0xfe:
		return "impdep1"
	case 0xff:
		return "impdep2"
	}
	return fmt.Sprintf("op_%#02x", byte(op))
}

// fixedLength returns the encoded length of op including operands, or 0 for
// variable-length instructions and -1 for undefined opcodes.
func fixedLength(op Opcode) int {
	switch {
	case op <= 0x0f:
		return 1
	case op == 0x10:
		return 2
	case op == 0x11:
		return 3
	case op == OpLdc:
		return 2
	case op == OpLdcW, op == OpLdc2W:
		return 3
	case op >= 0x15 && op <= 0x19:
		return 2
	case op >= 0x1a && op <= 0x35:
		return 1
	case op >= 0x36 && op <= 0x3a:
		return 2
	case op >= 0x3b && op <= 0x83:
		return 1
	case op == OpIinc:
		return 3
	case op >= 0x85 && op <= 0x98:
		return 1
	case op >= 0x99 && op <= 0xa8:
		return 3
	case op == 0xa9:
		return 2
	case op == OpTableswitch, op == OpLookupswitch, op == OpWide:
		return 0
	case op >= 0xac && op <= 0xb1:
		return 1
	case op >= 0xb2 && op <= 0xb8:
		return 3
	case op == OpInvokeinterface, op == OpInvokedynamic:
		return 5
	case op == OpNew:
		return 3
	case op == 0xbc:
		return 2
	case op == OpAnewarray:
		return 3
	case op >= 0xbe && op <= 0xbf:
		return 1
	case op == OpCheckcast, op == OpInstanceof:
		return 3
	case op == 0xc2, op == 0xc3:
		return 1
	case op == OpMultianewarray:
		return 4
	case op == 0xc6, op == 0xc7:
		return 3
	case op == 0xc8, op == 0xc9:
		return 5
	case op == 0xca, op == 0xfe, op == 0xff:
		return 1
	}
	return -1
}

// IsInvoke reports whether op is one of the four method invocation
// instructions that reference a Methodref or InterfaceMethodref.
func (op Opcode) IsInvoke() bool {
	return op >= OpInvokevirtual && op <= OpInvokeinterface
}

// referencesClass reports whether the two-byte operand of op is a Class
// constant index.
func (op Opcode) referencesClass() bool {
	switch op {
	case OpNew, OpAnewarray, OpCheckcast, OpInstanceof, OpMultianewarray:
		return true
	}
	return false
}
