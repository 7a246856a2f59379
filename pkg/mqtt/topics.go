package mqtt

// TelemetryTopic returns the device-to-cloud message topic for a device.
func TelemetryTopic(deviceID string) string {
	return "devices/" + deviceID + "/messages/events/"
}

// CloudToDeviceTopic returns the topic filter delivering cloud-to-device
// messages for a device.
func CloudToDeviceTopic(deviceID string) string {
	return "devices/" + deviceID + "/messages/devicebound/#"
}
