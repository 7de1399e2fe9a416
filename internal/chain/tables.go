package chain

// Table name constants mirror erigon-lib/kv's well-known table set. Kept as
// local constants (rather than importing the kv package just for strings)
// because this gateway only ever reads, and the accessor functions below are
// the sole callers.
const (
	tableHeaderCanonical  = "CanonicalHeader"
	tableHeaderNumber     = "HeaderNumber"
	tableHeaders          = "Header"
	tableBlockBody        = "BlockBody"
	tableEthTx            = "BlockTransaction"
	tableNonCanonicalTxs  = "NonCanonicalTransaction"
	tableSenders          = "TxSender"
	tableReceipts         = "Receipt"
	tableLog              = "TransactionLog"
	tableTxLookup         = "BlockTransactionLookup"
	tableConfig           = "Config"
	tableHeadHeaderKey    = "LastHeader"
	tableTD               = "HeadersTotalDifficulty"
	tablePlainState       = "PlainState"
	tableAccountChangeSet = "AccountChangeSet"
	tableStorageChangeSet = "StorageChangeSet"
	tableE2AccountHistory = "AccountHistory"
	tableE2StorageHistory = "StorageHistory"
	tablePlainCode        = "PlainCodeHash"
	tableCode             = "Code"
	tableCallFromIndex    = "CallFromIndex"
	tableCallToIndex      = "CallToIndex"
)

// CallFromIndexTable and CallToIndexTable expose the call-trace address
// indexes to traceexec, which is the sole consumer outside this package.
const (
	CallFromIndexTable = tableCallFromIndex
	CallToIndexTable   = tableCallToIndex
)
