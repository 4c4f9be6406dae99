package relay

// EncodeRequest 构造 4 字节请求帧，参数取值范围由调用方负责
func EncodeRequest(cmd Command, arg1, arg2 byte) []byte {
	return []byte{Magic, byte(cmd), arg1, arg2}
}

// BuildResponse 按固件布局构造响应：magic | kind | dataLen | data
func BuildResponse(kind ResponseKind, data ...byte) []byte {
	buf := make([]byte, 0, 3+len(data))
	buf = append(buf, Magic, byte(kind), byte(len(data)))
	return append(buf, data...)
}

func OKResponse() []byte { return BuildResponse(KindOk) }

func PongResponse() []byte { return BuildResponse(KindPong) }

// StatusResponse 状态应答，mask 第 i 位为第 i 路继电器状态
func StatusResponse(mask byte) []byte { return BuildResponse(KindStatus, mask) }

func ErrorResponse(code byte) []byte { return BuildResponse(KindErr, code) }
