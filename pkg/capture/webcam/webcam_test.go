package webcam

import "testing"

func TestDeviceID(t *testing.T) {
	if got, ok := deviceID("0").(int); !ok || got != 0 {
		t.Errorf("deviceID(0) = %v, want int 0", deviceID("0"))
	}
	if got, ok := deviceID("/dev/video2").(string); !ok || got != "/dev/video2" {
		t.Errorf("deviceID(/dev/video2) = %v", deviceID("/dev/video2"))
	}
	if got, ok := deviceID("rtsp://cam/live").(string); !ok || got != "rtsp://cam/live" {
		t.Errorf("deviceID(rtsp) = %v", deviceID("rtsp://cam/live"))
	}
}
