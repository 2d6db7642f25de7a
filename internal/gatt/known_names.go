package gatt

// Known-name tables for the standard GATT identifiers this tool encounters.
// Keys are normalized UUIDs (see NormalizeUUID).

var knownServiceNames = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"181a": "Environmental Sensing",

	// Xiaomi Mijia MJ_HT_V1 sensor data service
	"226c000064764566756266734470666d": "Mijia Sensor Data",
}

var knownCharacteristicNames = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a04": "Peripheral Preferred Connection Parameters",
	"2a19": "Battery Level",
	"2a26": "Firmware Revision String",
	"2a29": "Manufacturer Name String",

	"226caa5564764566756266734470666d": "Mijia Temperature",
	"226cbb5564764566756266734470666d": "Mijia Humidity",
}

// KnownServiceName returns a human-readable name for a service UUID, or ""
// when the UUID is not in the table.
func KnownServiceName(uuid string) string {
	return knownServiceNames[NormalizeUUID(uuid)]
}

// KnownCharacteristicName returns a human-readable name for a characteristic
// UUID, or "" when the UUID is not in the table.
func KnownCharacteristicName(uuid string) string {
	return knownCharacteristicNames[NormalizeUUID(uuid)]
}
