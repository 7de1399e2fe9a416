package historystate

const (
	tablePlainState       = "PlainState"
	tableCode             = "Code"
	tableAccountChangeSet = "AccountChangeSet"
	tableStorageChangeSet = "StorageChangeSet"
	tableE2AccountHistory = "AccountHistory"
	tableE2StorageHistory = "StorageHistory"
)
