package dto

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StorageSizeResponse struct {
	TotalSize string `json:"totalSize"`
}

type PingResponse struct {
	Ping string `json:"ping"`
}

type ReconcileResponse struct {
	Message        string `json:"message"`
	OrphanMetadata int    `json:"orphanMetadata"`
	OrphanBlobs    int    `json:"orphanBlobs"`
}
