package model

// Snapshot 是从发行备忘录中提取的结构化物业摘要，无法确定的字段为空字符串。
type Snapshot struct {
	PropertyName string   `json:"propertyName"`
	PropertyType string   `json:"propertyType"`
	Address      string   `json:"address"`
	AskingPrice  string   `json:"askingPrice"`
	PricePerUnit string   `json:"pricePerUnit"`
	CapRate      string   `json:"capRate"`
	NOI          string   `json:"noi"`
	Units        string   `json:"units"`
	SquareFeet   string   `json:"squareFeet"`
	Occupancy    string   `json:"occupancy"`
	YearBuilt    string   `json:"yearBuilt"`
	Highlights   []string `json:"highlights"`
	Risks        []string `json:"risks"`
}
