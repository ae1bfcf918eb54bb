package protocol

// Version is the server version reported to MCP clients and OTel resources.
const Version = "0.3.0"

// ProtocolVersion is bumped whenever a tool's input or result shape changes.
const ProtocolVersion = 1
