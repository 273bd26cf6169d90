package vulkan

import (
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestVulkanResultString(t *testing.T) {
	assert.Equal(t, "VK_ERROR_OUT_OF_DATE_KHR", VulkanResultString(vk.ErrorOutOfDate, false))
	assert.Contains(t, VulkanResultString(vk.ErrorOutOfDate, true), "no longer compatible")
	assert.Equal(t, "VkResult(-12345)", VulkanResultString(vk.Result(-12345), false))
}

func TestVkCheck(t *testing.T) {
	assert.NoError(t, vkCheck(vk.Success, "noop"))
	assert.NoError(t, vkCheck(vk.Suboptimal, "present"))

	err := vkCheck(vk.ErrorDeviceLost, "submit %d", 3)
	assert.ErrorContains(t, err, "submit 3")
}

func TestVulkanSafeString(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "VK_KHR_surface\x00", VulkanSafeString("VK_KHR_surface"))
	assert.Equal(t, "VK_KHR_surface\x00", VulkanSafeString("VK_KHR_surface\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, VulkanSafeStrings([]string{"a", "b\x00"}))
}

func TestCString(t *testing.T) {
	name := make([]byte, 256)
	copy(name, "VK_LAYER_KHRONOS_validation")
	assert.Equal(t, "VK_LAYER_KHRONOS_validation", cString(name))
	assert.Equal(t, "full", cString([]byte("full")))
}

func TestSafeQueueCallSerializes(t *testing.T) {
	pool := NewVulkanLockPool()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeQueueCall(2, func() error {
				counter++
				return nil
			})
			_ = pool.SafeCall(ResourceManagement, func() error { return nil })
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, counter)
}
