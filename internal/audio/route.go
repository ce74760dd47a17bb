package audio

// PreferredMonitorOutput picks the playback route for monitoring:
// Bluetooth A2DP/LE, then Bluetooth SCO, then wired headset/headphones,
// then the built-in speaker. The active input device is excluded so
// recorded audio is never echoed back into the device it came from.
func PreferredMonitorOutput(outputs []Device, excludeInputID string) *Device {
	var bluetooth, wired, speaker *Device
	for i := range outputs {
		d := &outputs[i]
		if excludeInputID != "" && d.ID == excludeInputID {
			continue
		}
		switch d.Kind {
		case KindBluetoothA2DP, KindBluetoothLE:
			if bluetooth == nil || bluetooth.Kind == KindBluetoothSCO {
				bluetooth = d
			}
		case KindBluetoothSCO:
			if bluetooth == nil {
				bluetooth = d
			}
		case KindWiredHeadset, KindWiredHeadphones:
			if wired == nil {
				wired = d
			}
		case KindBuiltinSpeaker:
			if speaker == nil {
				speaker = d
			}
		}
	}
	if bluetooth != nil {
		return bluetooth
	}
	if wired != nil {
		return wired
	}
	return speaker
}

// HasFeedbackRisk reports whether enabling monitoring could loop speaker
// output back into the microphone: the input is the built-in mic and no
// isolated (non-speaker) output is available.
func HasFeedbackRisk(input *Device, outputs []Device) bool {
	if input != nil && input.Kind.External() {
		return false
	}
	for _, d := range outputs {
		if d.Kind != KindBuiltinSpeaker {
			return false
		}
	}
	return true
}
