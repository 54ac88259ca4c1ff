package types

// DeviceInfo describes a device that can be prioritized.
type DeviceInfo struct {
	Name        DeviceType `json:"name"`
	DisplayName string     `json:"displayName"`
	Description string     `json:"description"`
}

// DeviceCatalog lists the prioritizable devices.
func DeviceCatalog() []DeviceInfo {
	return []DeviceInfo{
		{DeviceEVCharger, "Electric Vehicle Charger", "1.4-7.4 kW dynamic charging"},
		{DeviceACClimate, "Air Conditioning / Heating", "Temperature-based climate control"},
		{DeviceDishwasher, "Dishwasher", "1.8 kW appliance"},
		{DeviceSmartPlug, "Smart Plug Devices", "0.5 kW plugged devices"},
	}
}
