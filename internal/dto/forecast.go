package dto

type PredictRequest struct {
	CityName  string `json:"cityName"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	ModelType string `json:"modelType"`
}

type PredictResponse struct {
	Message string `json:"message"`
	Output  string `json:"output"`
}

type TrainModelRequest struct {
	ModelType string `json:"modelType"`
	CityName  string `json:"cityName"`
}

type ProcessCityRequest struct {
	City string `json:"city"`
}

type ProcessCityResponse struct {
	Message  string   `json:"message"`
	Uploaded []string `json:"uploaded"`
}
