package relay

const (
	logAttrBatchID      = "batch_id"
	logAttrMsgIndex     = "msg_index"
	logAttrMsgCount     = "msg_count"
	logAttrRoomID       = "room_id"
	logAttrAddress      = "address"
	logAttrReason       = "reason"
	logAttrRevertReason = "revert_reason"
	logAttrRawErrorData = "raw_error_data"
	logAttrRawTxData    = "raw_tx_data"
	logAttrTxHash       = "tx_hash"
	logAttrNonce        = "nonce"
	logAttrGasPrice     = "gas_price"
	logAttrGasLimit     = "gas_limit"
	logAttrGasUsed      = "gas_used"
	logAttrEstimatedGas = "estimated_gas"
	logAttrBlockHash    = "block_hash"
	logAttrBlockNumber  = "block_number"
	logAttrTxIndex      = "tx_index"
	logAttrStatus       = "status"
	logAttrElapsed      = "elapsed"
)
